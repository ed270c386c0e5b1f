// Package schema describes the versioned layout of records the collector
// writes, so consumers can decide whether they understand a stored file.
package schema

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Version is the schema version stamped on every stored record.
const Version = "1.1.0"

// MinSupportedVersion is the oldest schema version consumers must accept.
const MinSupportedVersion = "1.0.0"

// Metric type keys used for storage paths.
const (
	MetricProcessor         = "nifi_processor"
	MetricConnection        = "nifi_connection"
	MetricJVM               = "nifi_jvm"
	MetricControllerService = "nifi_controller_service"
	MetricReportingTask     = "nifi_reporting_task"
	MetricBulletin          = "nifi_bulletin"
	MetricProvenance        = "nifi_provenance"
	MetricCluster           = "nifi_cluster"
	MetricSystem            = "system"
)

// Release describes one schema version.
type Release struct {
	Version     string
	Date        string
	Changes     []string
	MetricTypes []string
}

var history = map[string]Release{
	"1.0.0": {
		Version: "1.0.0",
		Date:    "2024-12-01",
		Changes: []string{
			"Initial schema version",
			"Processor, connection, JVM, controller service, reporting task, bulletin and system metrics",
		},
		MetricTypes: []string{
			MetricProcessor, MetricConnection, MetricJVM, MetricControllerService,
			MetricReportingTask, MetricBulletin, MetricSystem,
		},
	},
	"1.1.0": {
		Version: "1.1.0",
		Date:    "2024-12-16",
		Changes: []string{
			"Added provenance event collection",
			"Added lineage and relationship fields",
			"Added event type filtering",
			"Added cluster summary metrics",
		},
		MetricTypes: []string{
			MetricProcessor, MetricConnection, MetricJVM, MetricControllerService,
			MetricReportingTask, MetricBulletin, MetricProvenance, MetricCluster, MetricSystem,
		},
	},
}

// Info returns the release notes for version, or false if it is unknown.
func Info(version string) (Release, bool) {
	r, ok := history[version]
	return r, ok
}

// IsCompatible reports whether a file written with fileVersion can be read by
// a consumer that supports minSupported up to the current Version.
func IsCompatible(fileVersion, minSupported string) bool {
	v, err := semver.StrictNewVersion(fileVersion)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(fmt.Sprintf(">= %s, <= %s", minSupported, Version))
	if err != nil {
		return false
	}
	return c.Check(v)
}

// SupportedMetricTypes lists the metric types defined by version. Unknown
// versions return nil.
func SupportedMetricTypes(version string) []string {
	r, ok := history[version]
	if !ok {
		return nil
	}
	return append([]string(nil), r.MetricTypes...)
}

// MigrationPath returns the ordered versions from "from" to "to" inclusive.
// It returns nil when either version is unknown or from is newer than to.
func MigrationPath(from, to string) []string {
	if _, ok := history[from]; !ok {
		return nil
	}
	if _, ok := history[to]; !ok {
		return nil
	}

	versions := make([]*semver.Version, 0, len(history))
	for v := range history {
		versions = append(versions, semver.MustParse(v))
	}
	sort.Sort(semver.Collection(versions))

	lo, hi := semver.MustParse(from), semver.MustParse(to)
	if lo.GreaterThan(hi) {
		return nil
	}

	var path []string
	for _, v := range versions {
		if v.LessThan(lo) || v.GreaterThan(hi) {
			continue
		}
		path = append(path, v.Original())
	}
	return path
}
