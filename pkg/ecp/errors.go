/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ecp

import "errors"

var (
	// ErrInvalidAddress reports a malformed device IP address. Surfaced
	// to the caller, never retried.
	ErrInvalidAddress = errors.New("invalid device address")

	// ErrProtocol reports a transport failure, non-2xx response, or an
	// unparsable response body. Recoverable per call, never fatal.
	ErrProtocol = errors.New("ecp protocol error")
)
