package repository

import "errors"

// Fixed keys under which the token pair is persisted, shared by every driver.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// ErrPartialTokenPair is returned when a caller tries to persist only one of the two tokens.
var ErrPartialTokenPair = errors.New("token pair must carry both access and refresh token")
