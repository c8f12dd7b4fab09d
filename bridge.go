// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"code.hybscloud.com/kont"
)

// ExprTask is a session entry point written in Expr-world.
type ExprTask func(s *Session) kont.Expr[struct{}]

// Task converts t to a Cont-world Task the reactor can run.
func (t ExprTask) Task() Task {
	return func(s *Session) kont.Eff[struct{}] {
		return Reflect(t(s))
	}
}

// Reify converts a Cont-world computation to Expr-world.
func Reify[A any](m kont.Eff[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts an Expr-world computation to Cont-world.
func Reflect[A any](m kont.Expr[A]) kont.Eff[A] {
	return kont.Reflect(m)
}
