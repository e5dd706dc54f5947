package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vorteil/vhdkit/pkg/elog"
)

var log elog.View

var (
	flagDebug  bool
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "vhdkit",
	Short: "Create, inspect, and export VHD virtual disk images",
	Long: `vhdkit works with the three VHD variants: fixed, dynamic, and
differencing. It can create sparse images, snapshot them, read and write
individual sectors, validate their structure, and export whole chains (or
deltas between two points in a chain) to raw or repacked VHD files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {

		logger := &elog.CLI{}
		logrus.SetFormatter(logger)
		if flagDebug {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}
		log = logger

		return loadConfig(flagConfig)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a vhdkit config file")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(batCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
