// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/util"
)

// maxNoiseLog caps how much of a dropped line is logged.
const maxNoiseLog = 120

// NoiseHook returns a cloud.NoiseHook that counts dropped stream lines and
// logs them at debug level.
func NoiseHook(log logrus.FieldLogger) cloud.NoiseHook {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(line string, err error) {
		RecordNoise()
		log.WithFields(logrus.Fields{
			"line": util.TruncateRunes(line, maxNoiseLog),
		}).WithError(err).Debug("dropped stream line")
	}
}
