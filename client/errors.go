// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"

	"github.com/agentwire/a2a"
)

// code extracts the JSON-RPC error code from an error returned by the
// client, or 0 when the error did not come from the server.
func code(err error) int {
	var rpcErr *a2a.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

// IsTaskNotFound reports whether the error is the server's task-not-found
// response.
func IsTaskNotFound(err error) bool {
	return code(err) == a2a.ErrorCodeTaskNotFound
}

// IsTaskNotCancelable reports whether the error says the task is already in
// a terminal state.
func IsTaskNotCancelable(err error) bool {
	return code(err) == a2a.ErrorCodeTaskNotCancelable
}

// IsPushNotificationUnsupported reports whether the server carries no push
// notification capability.
func IsPushNotificationUnsupported(err error) bool {
	return code(err) == a2a.ErrorCodePushNotificationNotSupported
}

// IsInvalidRequest reports whether the server rejected the request payload,
// including status transitions the lifecycle forbids.
func IsInvalidRequest(err error) bool {
	return code(err) == a2a.ErrorCodeInvalidRequest
}
