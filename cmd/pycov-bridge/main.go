package main

import (
	"flag"
	"os"

	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

func main() {
	opts := zap.Options{
		Development: true,
		TimeEncoder: zapcore.ISO8601TimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	logger = zap.New(zap.UseFlagOptions(&opts))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
