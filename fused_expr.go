// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"code.hybscloud.com/kont"
)

// ExprReadLineBind reads one line from the peer and passes it to f.
// Fuses ExprPerform(ReadLine{}) + ExprBind.
func ExprReadLineBind[B any](f func(string) kont.Expr[B]) kont.Expr[B] {
	return kont.ExprBind(kont.ExprPerform(ReadLine{}), f)
}

// ExprWriteThen writes data to the peer and then continues with next.
// Fuses ExprPerform(Write{Data: data}) + ExprThen.
func ExprWriteThen[B any](data []byte, next kont.Expr[B]) kont.Expr[B] {
	return kont.ExprThen(kont.ExprPerform(Write{Data: data}), next)
}

// ExprAwaitBind waits for a delivered value and passes it to f.
// Fuses ExprPerform(Await[T]{}) + ExprBind.
func ExprAwaitBind[T, B any](f func(T) kont.Expr[B]) kont.Expr[B] {
	return kont.ExprBind(kont.ExprPerform(Await[T]{}), f)
}

// ExprDone completes an Expr-world task.
func ExprDone() kont.Expr[struct{}] {
	return kont.ExprReturn(struct{}{})
}

// ExprFail aborts an Expr-world task with err.
func ExprFail[A any](err error) kont.Expr[A] {
	return kont.ExprThrowError[error, A](err)
}
