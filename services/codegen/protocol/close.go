// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

// Close codes carried by the channel's close frame.
const (
	// CloseNormal ends a successful generation.
	CloseNormal = 1000

	// CloseAbnormal is reported locally when the connection drops without a
	// close frame. It is never sent.
	CloseAbnormal = 1006

	// CloseAppError follows an error or variantError event the backend
	// already reported.
	CloseAppError = 4332

	// CloseUserCancel is sent by the client to cancel a generation.
	CloseUserCancel = 4333
)

// Termination classifies how a session ended.
type Termination int

const (
	// TerminationCompleted is a normal close.
	TerminationCompleted Termination = iota

	// TerminationCancelled is a user close, local or echoed by the backend.
	TerminationCancelled

	// TerminationServerError is a known backend failure.
	TerminationServerError

	// TerminationAbnormal is any other close code, a dropped connection, or
	// an idle timeout.
	TerminationAbnormal
)

// String returns a metrics-friendly label.
func (t Termination) String() string {
	switch t {
	case TerminationCompleted:
		return "completed"
	case TerminationCancelled:
		return "cancelled"
	case TerminationServerError:
		return "server_error"
	default:
		return "abnormal"
	}
}

// Classify maps a close code to its termination class.
func Classify(code int) Termination {
	switch code {
	case CloseNormal:
		return TerminationCompleted
	case CloseUserCancel:
		return TerminationCancelled
	case CloseAppError:
		return TerminationServerError
	default:
		return TerminationAbnormal
	}
}

// User-visible notices tied to termination.
const (
	CancelMessage = "Code generation cancelled"
	ErrorMessage  = "Error generating code. Check the logs for details."
)
