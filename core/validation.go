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

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxDocumentIDLength bounds document ids so that derived vector ids stay
// within the 512 byte limit common to hosted vector indexes.
const MaxDocumentIDLength = 256

// ValidateDocumentID checks that id can be used for prefix addressing.
//
// Validation rules:
//   - id must not be empty
//   - id must not contain '_' (doc "a" would otherwise prefix doc "a_b")
//   - id must not contain whitespace
//   - id must be at most MaxDocumentIDLength bytes
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidDocumentID)
	}
	if len(id) > MaxDocumentIDLength {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalidDocumentID, len(id), MaxDocumentIDLength)
	}
	if strings.ContainsRune(id, '_') {
		return fmt.Errorf("%w: %q contains '_'", ErrInvalidDocumentID, id)
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidDocumentID, id)
	}
	return nil
}
