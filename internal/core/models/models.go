// Package models links the built-in co-simulation models into the
// binary. Importing it for side effects registers every built-in
// driver:
//
//	import _ "github.com/fmukit/fmukit/internal/core/models"
package models

import (
	_ "github.com/fmukit/fmukit/internal/core/models/bouncingball"
	_ "github.com/fmukit/fmukit/internal/core/models/planarball"
)
