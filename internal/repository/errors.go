package repository

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 并发创建时唯一约束冲突，调用方应重新查询
	ErrDuplicate = errors.New("record already exists")
	// ErrVersionConflict 乐观锁版本不一致
	ErrVersionConflict = errors.New("record was modified concurrently")
)
