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

// Pipeline error taxonomy. Callers test with errors.Is; the concrete cause is
// wrapped after the sentinel.
var (
	// ErrConfig indicates missing credentials, invalid sizing or a dimension
	// mismatch. It is raised at construction time and never recovered.
	ErrConfig = errors.New("configuration error")

	// ErrTransport indicates a network-level failure talking to a provider,
	// including timeouts and an open circuit breaker.
	ErrTransport = errors.New("transport failure")

	// ErrProvider indicates a provider answered with a non-success status or
	// an empty or malformed payload.
	ErrProvider = errors.New("provider error")

	// ErrStoreUnavailable indicates the vector store could not be reached or
	// refused the request.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrInvalidDocumentID indicates a document id that would break prefix
	// addressing.
	ErrInvalidDocumentID = errors.New("invalid document id")

	// ErrInvalidMetadata indicates a metadata value outside string, number or bool.
	ErrInvalidMetadata = errors.New("invalid metadata value")
)
