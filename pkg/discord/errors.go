package discord

import (
	"context"
	"errors"
	"net/http"

	apperrors "guildmirror/internal/errors"

	"github.com/bwmarrin/discordgo"
)

// Discord JSON error code for a payload exceeding the upload limit.
const apiCodeRequestEntityTooLarge = 40005

// mapErr classifies a platform error into the application taxonomy so the
// dispatcher can decide between retrying, downgrading and aborting.
func mapErr(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.WrapRetryable(err, apperrors.ErrCodeRateLimit, operation+" rate limited")
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if isTooLarge(restErr) {
			return apperrors.Wrap(err, apperrors.ErrCodeTooLarge, operation+" payload too large")
		}
		if restErr.Response != nil && restErr.Response.StatusCode >= http.StatusInternalServerError {
			return apperrors.WrapRetryable(err, apperrors.ErrCodePlatformSend, operation+" failed upstream")
		}
		return apperrors.Wrap(err, apperrors.ErrCodePlatformSend, operation+" rejected")
	}

	// Anything else is a transport-level failure worth retrying.
	return apperrors.WrapRetryable(err, apperrors.ErrCodePlatformSend, operation+" failed")
}

func isTooLarge(restErr *discordgo.RESTError) bool {
	if restErr.Message != nil && restErr.Message.Code == apiCodeRequestEntityTooLarge {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusRequestEntityTooLarge
}
