package utils

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateClientID generates a fresh signaling identity for a connection.
func GenerateClientID() string {
	return uuid.New().String()
}

// GenerateExamID generates a unique exam ID.
func GenerateExamID() string {
	return uuid.New().String()
}

// GenerateRoomCode generates a 6-character alphanumeric join code. Random
// bytes outside the largest multiple of the alphabet size are discarded so
// every character is drawn uniformly.
func GenerateRoomCode() (string, error) {
	const limit = 256 - 256%len(roomCodeAlphabet)

	code := make([]byte, 0, 6)
	buf := make([]byte, 16)
	for len(code) < cap(code) {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == cap(code) {
				break
			}
		}
	}
	return string(code), nil
}
