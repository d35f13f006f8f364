// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "errors"

// Error kinds shared by every component. Callers classify failures with errors.Is.
var (
	// ErrTransientTransport indicates a mailbox, SMTP or network hiccup.
	// The owning layer retries with backoff and never drops data.
	ErrTransientTransport = errors.New("transient transport error")

	// ErrGateway indicates a model or embedding call failed or timed out.
	ErrGateway = errors.New("gateway error")

	// ErrContractViolation indicates malformed input such as a mismatched
	// embedding dimension or an invalid raw message. The offending item is
	// quarantined rather than retried.
	ErrContractViolation = errors.New("contract violation")

	// ErrExhaustedRetry indicates notification delivery permanently failed.
	ErrExhaustedRetry = errors.New("retries exhausted")
)

// Domain validation errors
var (
	// ErrInvalidMessage indicates a RawMessage failed validation.
	ErrInvalidMessage = errors.New("invalid raw message")

	// ErrEmptyFolder indicates the Folder field is empty.
	ErrEmptyFolder = errors.New("folder cannot be empty")

	// ErrZeroUID indicates the UID field is zero.
	ErrZeroUID = errors.New("uid cannot be zero")

	// ErrEmptyMessage indicates a message with neither subject nor body.
	ErrEmptyMessage = errors.New("message has no subject or body")

	// ErrInvalidCategory indicates an unknown Category value.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidImportance indicates an unknown Importance value.
	ErrInvalidImportance = errors.New("invalid importance")

	// ErrIncompleteRecord indicates a processed record missing summary, category or importance.
	ErrIncompleteRecord = errors.New("processed record is incomplete")
)
