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

// Package notify delivers a notification for every high-importance record.
//
// Each record gets at most one NotificationEvent. An event starts queued;
// a successful delivery makes it sent, and a failed one leaves it queued
// with the attempt counted and the next attempt pushed back exponentially.
// Once the attempt count reaches the configured maximum the event is
// exhausted and reported. Sent and exhausted are terminal.
//
// Enqueue triggers an immediate attempt in the background. A periodic sweep
// retries every queued event whose backoff has elapsed, so delivery
// survives restarts. Attempts for one record are serialized, which keeps a
// record from being sent twice when the sweep and a trigger race.
package notify
