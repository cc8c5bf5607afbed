package scenario

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeProcessDataPackage serializes a prepared data package to msgpack,
// the wire format a batch coordinator uses when dispatching scenario work
// to a separate process or caching a prepared package across runs of the
// same scenario set.
func EncodeProcessDataPackage(pkg ProcessDataPackage) ([]byte, error) {
	data, err := msgpack.Marshal(&pkg)
	if err != nil {
		return nil, fmt.Errorf("scenario: encoding process data package: %w", err)
	}
	return data, nil
}

// DecodeProcessDataPackage is the inverse of EncodeProcessDataPackage.
func DecodeProcessDataPackage(data []byte) (ProcessDataPackage, error) {
	var pkg ProcessDataPackage
	if err := msgpack.Unmarshal(data, &pkg); err != nil {
		return ProcessDataPackage{}, fmt.Errorf("scenario: decoding process data package: %w", err)
	}
	return pkg, nil
}

// EncodeProcessResult serializes a scenario's result to msgpack, used the
// same way when results need to cross a process boundary back to a batch
// coordinator running in a different process than the one that executed
// the tick loop.
func EncodeProcessResult(result ProcessResult) ([]byte, error) {
	data, err := msgpack.Marshal(&result)
	if err != nil {
		return nil, fmt.Errorf("scenario: encoding process result: %w", err)
	}
	return data, nil
}

// DecodeProcessResult is the inverse of EncodeProcessResult.
func DecodeProcessResult(data []byte) (ProcessResult, error) {
	var result ProcessResult
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return ProcessResult{}, fmt.Errorf("scenario: decoding process result: %w", err)
	}
	return result, nil
}
