package api

import (
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/provservice"
)

// ScanResult is a single-entry scan response (aliased from the domain layer).
type ScanResult = models.ScanResult

// TreeResponse is a directory scan response.
type TreeResponse = provservice.TreeResult

// RecordDetail is a record lookup response.
type RecordDetail = models.RecordDetail

// IndexInfoResponse describes the loaded index.
type IndexInfoResponse = provservice.IndexInfo
