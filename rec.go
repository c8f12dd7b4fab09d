// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"code.hybscloud.com/kont"
)

// Loop runs an iterative protocol.
// step returns Left(nextState) to continue or Right(result) to finish.
// Every iteration that suspends unwinds the stack, so a long-lived session
// loop does not grow it.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	return kont.Bind(step(initial), func(e kont.Either[S, A]) kont.Eff[A] {
		if next, ok := e.GetLeft(); ok {
			return Loop(next, step)
		}
		result, _ := e.GetRight()
		return kont.Pure(result)
	})
}

// Continue is the Left result of a Loop step.
func Continue[S, A any](next S) kont.Eff[kont.Either[S, A]] {
	return kont.Pure(kont.Left[S, A](next))
}

// Break is the Right result of a Loop step.
func Break[S, A any](result A) kont.Eff[kont.Either[S, A]] {
	return kont.Pure(kont.Right[S, A](result))
}

// ExprLoop runs an iterative protocol in Expr-world.
func ExprLoop[S, A any](initial S, step func(S) kont.Expr[kont.Either[S, A]]) kont.Expr[A] {
	return kont.ExprBind(step(initial), func(e kont.Either[S, A]) kont.Expr[A] {
		if next, ok := e.GetLeft(); ok {
			return ExprLoop(next, step)
		}
		result, _ := e.GetRight()
		return kont.ExprReturn(result)
	})
}
