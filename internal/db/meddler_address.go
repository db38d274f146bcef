package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("address", AddressMeddler{})
}

// AddressMeddler converts between common.Address and its Postgres text
// representation (checksummed hex).
type AddressMeddler struct{}

func (a AddressMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (a AddressMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	if ptr, ok := fieldAddr.(**common.Address); ok {
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		address := common.HexToAddress(ns.String)
		*ptr = &address
		return nil
	}

	if ptr, ok := fieldAddr.(*common.Address); ok {
		if !ns.Valid {
			*ptr = common.Address{}
			return nil
		}
		*ptr = common.HexToAddress(ns.String)
		return nil
	}

	return fmt.Errorf("expected *common.Address or **common.Address, got %T", fieldAddr)
}

func (a AddressMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	if ptr, ok := field.(*common.Address); ok {
		if ptr == nil {
			return nil, nil
		}
		return ptr.Hex(), nil
	}

	if address, ok := field.(common.Address); ok {
		return address.Hex(), nil
	}

	return nil, fmt.Errorf("expected common.Address or *common.Address, got %T", field)
}
