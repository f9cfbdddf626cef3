package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// nodeDTO mirrors keymaster.Server's wire representation so matrixctl can
// speak the same JSON without importing the internal package.
type nodeDTO struct {
	Scalar string             `json:"scalar,omitempty"`
	List   []nodeDTO          `json:"list,omitempty"`
	Map    map[string]nodeDTO `json:"map,omitempty"`
}

func getKV(addr, path string) (string, error) {
	resp, err := http.Get(addr + "/kv/" + path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("get %s: %s: %s", path, resp.Status, string(body))
	}
	var dto nodeDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return "", err
	}
	return dto.Scalar, nil
}

func callRPC(addr, path, arg string) (string, error) {
	body, err := json.Marshal(nodeDTO{Scalar: arg})
	if err != nil {
		return "", err
	}
	resp, err := http.Post(addr+"/rpc/"+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rpc %s: %s: %s", path, resp.Status, string(respBody))
	}
	var dto nodeDTO
	if err := json.Unmarshal(respBody, &dto); err != nil {
		return "", err
	}
	return dto.Scalar, nil
}
