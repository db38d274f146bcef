package rpc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var tooManyResultsPattern = regexp.MustCompile(`Query returned more than \d+ results`)

// IsTooManyResultsError reports whether err is an RPC "too many results"
// DataError, returning its raw error data for range parsing (spec §4.6:
// "a reduced window on the next attempt").
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsPattern.MatchString(errData), errData
	}

	return false, ""
}

var suggestedRangePattern = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)

// ParseSuggestedBlockRange extracts a provider-suggested block range from an
// error message of the form "... [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(errMsg string) (fromBlock, toBlock uint64, ok bool) {
	if errMsg == "" {
		return 0, 0, false
	}

	matches := suggestedRangePattern.FindStringSubmatch(errMsg)
	const expectedMatches = 3
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := parseHexUint64(matches[1])
	to, err2 := parseHexUint64(matches[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return from, to, true
}

func parseHexUint64(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
