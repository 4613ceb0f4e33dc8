// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package sprig

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// randBytes returns count random bytes base64 encoded
func randBytes(count int) (string, error) {
	buf := make([]byte, count)
	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

func uuidv4() string {
	return uuid.NewString()
}
