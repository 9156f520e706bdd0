package shard

import "errors"

var (
	ErrFileTooLarge     = errors.New("file exceeds size limit")
	ErrTooManyRecords   = errors.New("record count exceeds limit")
	ErrMissingColumn    = errors.New("required column missing")
	ErrMalformed        = errors.New("malformed shard file")
	ErrNoShard          = errors.New("no shard found")
	ErrNotRegular       = errors.New("not a regular file")
)
