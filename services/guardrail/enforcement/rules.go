// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package enforcement embeds the default guardrail rule set so the binary
// ships with working rules and no runtime file dependency.
package enforcement

import _ "embed"

// DefaultRules is the embedded YAML rule set. A deployment can override it
// with GUARDRAIL_RULES_PATH; the embedded copy is the fallback.
//
//go:embed rules.yaml
var DefaultRules []byte
