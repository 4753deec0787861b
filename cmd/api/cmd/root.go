package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var loadDotEnv bool

var rootCmd = &cobra.Command{
	Use:   "cybertrainer-api",
	Short: "CyberTrainer API server",
	Long: `Serves the CyberTrainer API: login with brute-force lockout, signed session
tokens and CSRF-protected state-changing requests.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&loadDotEnv, "dotenv", true, "Load a .env file from the working directory before reading the environment")
}
