package util

// ArrayUnique removes duplicates, keeping first occurrence order
// ArrayUnique 去重并保持原有顺序
func ArrayUnique(arr []string) []string {
	result := make([]string, 0, len(arr))
	seen := make(map[string]struct{}, len(arr))
	for _, v := range arr {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
