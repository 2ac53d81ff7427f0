package service

import "time"

const (
	// safetyBufferBlocks is how far pruning lags the validated tip:
	// 7 * 144 blocks, about one week.
	safetyBufferBlocks = 1008

	// defaultStepBudget bounds how long the worker follows one walker plan
	// before re-selecting the target tip.
	defaultStepBudget = 15 * time.Second

	defaultCursorPoolCapacity = 4
	cursorTakeTimeout         = 30 * time.Second

	sleepDuration     = 5 * time.Second
	longSleepDuration = 1 * time.Minute
)
