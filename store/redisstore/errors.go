package redisstore

import (
	"fmt"

	"github.com/MrEthical07/goIdentity/store"
)

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
