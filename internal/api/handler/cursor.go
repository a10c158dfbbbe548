package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/marketplace"
)

// cursors are base64("<created_at unix nanos>|<id>")
func decodeCursor(cursorStr string) (time.Time, string, error) {
	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return time.Time{}, "", err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 || decodedParts[1] == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(decodedParts[0], "%d", &createdAt); err != nil {
		return time.Time{}, "", fmt.Errorf("invalid createdAt in cursor: %w", err)
	}
	return time.Unix(0, createdAt).UTC(), decodedParts[1], nil
}

func encodeCursor(createdAt time.Time, id string) string {
	cs := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}

func DecodeJobCursor(cursorStr string) (*marketplace.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}
	createdAt, id, err := decodeCursor(cursorStr)
	if err != nil {
		return nil, err
	}
	return &marketplace.JobCursor{CreatedAt: createdAt, JobID: id}, nil
}

func EncodeJobCursor(cursor *marketplace.JobCursor) string {
	return encodeCursor(cursor.CreatedAt, cursor.JobID)
}

func DecodeTransactionCursor(cursorStr string) (*ledger.TransactionCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}
	createdAt, id, err := decodeCursor(cursorStr)
	if err != nil {
		return nil, err
	}
	return &ledger.TransactionCursor{CreatedAt: createdAt, ID: id}, nil
}

func EncodeTransactionCursor(cursor *ledger.TransactionCursor) string {
	return encodeCursor(cursor.CreatedAt, cursor.ID)
}
