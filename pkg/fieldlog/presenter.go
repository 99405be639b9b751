package fieldlog

import (
	"context"
	"log/slog"
)

// ErrorPresenter shows an error to the user, for example in a dialog. The
// engine has already logged the item when PresentError is called.
type ErrorPresenter interface {
	PresentError(ctx context.Context, item *ExceptionItem, continuable bool)
}

// ErrorPresenterFunc adapts a function to ErrorPresenter.
type ErrorPresenterFunc func(ctx context.Context, item *ExceptionItem, continuable bool)

func (f ErrorPresenterFunc) PresentError(ctx context.Context, item *ExceptionItem, continuable bool) {
	f(ctx, item, continuable)
}

type logPresenter struct {
	logger *slog.Logger
}

func (p logPresenter) PresentError(ctx context.Context, item *ExceptionItem, continuable bool) {
	p.logger.ErrorContext(ctx, "unhandled error",
		"type", item.Exception.Type,
		"message", item.Exception.Message,
		"continuable", continuable,
	)
}
