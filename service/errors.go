package service

import (
	"errors"
	"fmt"

	"ovozber-backend/repository"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrPollNotFound     = errors.New("poll not found")
	ErrRegionNotFound   = errors.New("region not found")
	ErrDistrictNotFound = errors.New("district not found")

	// ErrUnavailable 存储不可用，调用方应直接上报，不做重试
	ErrUnavailable = errors.New("service unavailable")
)

// storeError 把仓库层错误映射为服务层错误，notFound 为记录不存在时返回的错误
func storeError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
