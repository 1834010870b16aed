package cmd

import (
	"context"
	"fmt"
	"time"

	internalApp "github.com/haierkeys/library-backup-service/internal/app"
	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/pkg/execx"

	"github.com/gookit/goutil/dump"
	"github.com/spf13/cobra"
)

// maskedConfig returns a copy of cfg safe to print
func maskedConfig(cfg *internalApp.AppConfig) internalApp.AppConfig {
	out := *cfg
	for _, s := range []*string{
		&out.Security.EncryptionSecret,
		&out.Security.AuthToken,
		&out.OAuth.ClientSecret,
		&out.Batch.AnalysisToken,
	} {
		if *s != "" {
			*s = domain.SecretMask
		}
	}
	return out
}

// probeVersion runs "<binary> version" and returns the first output line
func probeVersion(ctx context.Context, runner execx.Runner, binary string) (string, error) {
	res, err := runner.Run(ctx, execx.Command{Name: binary, Args: []string{"version"}, Timeout: 15 * time.Second})
	if err != nil {
		return "", err
	}
	return execx.FirstLine(res.Stdout), nil
}

func init() {
	var configFile string

	checkCmd := &cobra.Command{
		Use:   "check-config [-c config_file]",
		Short: "Validate the config file and probe restic / rclone. // 校验配置并检测 restic、rclone。",
		RunE: func(cmd *cobra.Command, args []string) error {
			runEnv := &runFlags{config: configFile}
			if runEnv.config == "" {
				runEnv.config = "config/config.yaml"
			}
			cfg, realpath, err := internalApp.LoadConfig(runEnv.config)
			if err != nil {
				return err
			}
			fmt.Printf("config: %s\n", realpath)
			dump.P(maskedConfig(cfg))

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			runner := execx.NewExecRunner(bootstrapLogger)
			ctx := context.Background()
			for _, bin := range []string{cfg.Backup.ResticBinary, cfg.Share.RcloneBinary} {
				v, err := probeVersion(ctx, runner, bin)
				if err != nil {
					fmt.Printf("%-8s unavailable: %v\n", bin, err)
					continue
				}
				fmt.Printf("%-8s %s\n", bin, v)
			}
			fmt.Println("config ok")
			return nil
		},
	}

	checkCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file")
	rootCmd.AddCommand(checkCmd)
}
