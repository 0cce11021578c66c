// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package page

import "github.com/holomush/scriptkit/internal/stdio"

// StderrClass marks lines that came from stderr.
const StderrClass = "scriptkit-stderr"

// TargetListener mirrors interpreter output into a page element.
type TargetListener struct {
	Page *Page
	ID   string
}

var _ stdio.Listener = (*TargetListener)(nil)

// StdoutWriteline implements stdio.Listener.
func (l *TargetListener) StdoutWriteline(line string) error {
	return l.Page.Append(l.ID, line)
}

// StderrWriteline implements stdio.Listener.
func (l *TargetListener) StderrWriteline(line string) error {
	return l.Page.AppendClass(l.ID, line, StderrClass)
}
