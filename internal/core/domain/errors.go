package domain

import "errors"

var (
	ErrProducerNotFound = errors.New("producer not found")
	ErrExamNotFound     = errors.New("exam not found")
)
