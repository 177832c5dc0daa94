package core

import "github.com/facebookgo/clock"

type poolOptions struct {
	clk      clock.Clock
	log      Log
	operates OperateStore
}

type OptionFunc func(o *poolOptions)

func WithClock(clk clock.Clock) OptionFunc {
	return func(o *poolOptions) {
		o.clk = clk
	}
}

func WithLog(log Log) OptionFunc {
	return func(o *poolOptions) {
		o.log = log
	}
}

func WithOperateStore(store OperateStore) OptionFunc {
	return func(o *poolOptions) {
		o.operates = store
	}
}

func newPoolOptions(opts ...OptionFunc) poolOptions {
	o := poolOptions{
		clk: clock.New(),
		log: NopLog(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
