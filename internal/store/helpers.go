package store

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

func addressFromBytes(b []byte) common.Address {
	return common.BytesToAddress(b)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
