package fmu

import "errors"

var (
	ErrInvalidFile        = errors.New("archive file does not exist or is not a regular file")
	ErrInvalidOutputDir   = errors.New("output directory does not exist or is not a directory")
	ErrInvalidArchive     = errors.New("file is not a valid model archive")
	ErrMissingDescription = errors.New("archive has no modelDescription.xml")
)
