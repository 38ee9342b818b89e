package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mizumi-finance/mizumi-server/pkg/grpc/app"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/server"
)

func main() {
	if err := app.Run(server.NewApp(), app.WithDefaultAppName("mizumi-server")); err != nil {
		logrus.StandardLogger().WithError(err).Error("error running mizumi server")
		os.Exit(1)
	}
}
