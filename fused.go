// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"time"

	"code.hybscloud.com/kont"
)

// ReadLineBind reads one line from the peer and passes it to f.
// Fuses Perform(ReadLine{}) + Bind.
func ReadLineBind[B any](f func(string) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(ReadLine{}), f)
}

// WriteThen writes data to the peer and then continues with next.
// Fuses Perform(Write{Data: data}) + Then.
func WriteThen[B any](data []byte, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Write{Data: data}), next)
}

// WriteString writes str to the peer and then continues with next.
func WriteString[B any](str string, next kont.Eff[B]) kont.Eff[B] {
	return WriteThen([]byte(str), next)
}

// AwaitBind waits for a value delivered to the session and passes it to f.
// Fuses Perform(Await[T]{}) + Bind.
func AwaitBind[T, B any](f func(T) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Await[T]{}), f)
}

// SleepThen waits d on the reactor clock and then continues with next.
// Fuses Perform(Sleep{Duration: d}) + Then.
func SleepThen[B any](d time.Duration, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Sleep{Duration: d}), next)
}

// DeliverThen hands v to the session to and continues with whether it was
// accepted. Fuses Perform(Deliver{...}) + Bind.
func DeliverThen[B any](to *Session, v any, f func(bool) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Deliver{To: to, Value: v}), f)
}

// Done completes a task.
func Done() kont.Eff[struct{}] {
	return kont.Pure(struct{}{})
}

// Fail aborts the task with err. The session is torn down as failed.
func Fail[A any](err error) kont.Eff[A] {
	return kont.ThrowError[error, A](err)
}
