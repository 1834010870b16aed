package util

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ZipFilter decides whether a file (by slash-separated relative path) goes into the archive.
type ZipFilter func(rel string, d fs.DirEntry) bool

// ZipDir streams the tree under root into w as a zip archive.
// Directories are walked even when filtered files inside them are skipped.
// ZipDir 将 root 目录以 zip 格式流式写入 w
func ZipDir(w io.Writer, root string, keep ZipFilter) (int, error) {
	archive := zip.NewWriter(w)
	files := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." || d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if keep != nil && !keep(rel, d) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = rel
		header.Method = zip.Deflate

		writer, err := archive.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		if _, err = io.Copy(writer, file); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		archive.Close()
		return files, err
	}
	return files, archive.Close()
}
