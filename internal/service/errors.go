package service

import "errors"

// 业务层通用错误，handler 根据错误类型映射到状态码或重定向。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoomNotFound       = errors.New("room not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrRequestNotFound    = errors.New("request not found")
	ErrNotHost            = errors.New("not the room host")
	ErrRoomAccessDenied   = errors.New("room access denied")
	ErrEmptyText          = errors.New("text must not be empty")
	ErrSelfMessage        = errors.New("cannot message yourself")
	ErrNotProfileOwner    = errors.New("not the profile owner")
)
