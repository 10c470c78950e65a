package cwidget

import (
	"errors"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

var (
	ErrNotInteger  = errors.New("not an integer")
	ErrNotPositive = errors.New("must be positive")
)

// Input is a labelled entry that validates its text into a T and shows the
// validation error under the entry.
type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged   func(T)
	OnSubmitted func(T)

	Validator func(string) (T, error)
}

// NewIntInput accepts positive integers; an empty entry means defaultValue.
func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	input := &Input[int]{
		LabelText:    label,
		Placeholder:  placeholder,
		OnChanged:    onChanged,
		DefaultValue: defaultValue,
	}

	input.labelWidget = widget.NewLabel(fmt.Sprintf("%s: %d", label, input.DefaultValue))
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.Validator = func(s string) (int, error) {
		if s == "" {
			return input.DefaultValue, nil
		}

		res, err := strconv.Atoi(s)
		if err != nil {
			return input.DefaultValue, ErrNotInteger
		}

		if res <= 0 {
			return input.DefaultValue, ErrNotPositive
		}

		return res, nil
	}

	input.entryWidget.OnChanged = func(s string) {
		res, ok := input.validate(s)
		if !ok {
			return
		}

		input.labelWidget.SetText(fmt.Sprintf("%s: %d", label, res))
		if input.OnChanged != nil {
			input.OnChanged(res)
		}
	}

	input.entryWidget.OnSubmitted = func(s string) {
		if res, ok := input.validate(s); ok && input.OnSubmitted != nil {
			input.OnSubmitted(res)
		}
	}

	input.ExtendBaseWidget(input)

	return input
}

func (item *Input[T]) validate(s string) (T, bool) {
	res, err := item.Validator(s)
	item.SetError(err)
	return res, err == nil
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	if err == nil {
		item.errorWidget.Hide()
		return
	}

	item.errorWidget.SetText(err.Error())
	item.errorWidget.Show()
}
