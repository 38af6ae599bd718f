package chat

import "errors"

var (
	// ErrTurnInProgress 上一轮尚未结束时再次开启新轮次
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrNoPendingTurn 没有待发送的轮次
	ErrNoPendingTurn = errors.New("no pending turn")
)
