// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package abtest

import (
	"crypto/sha256"
	"math/big"

	"github.com/tomtom215/featurestore/internal/models"
)

// BucketCount is the number of hash buckets; traffic percentages map 1:1 to buckets.
const BucketCount = 100

var bucketModulus = big.NewInt(BucketCount)

// Bucket maps (slug, subjectKey) to [0, BucketCount). The whole SHA-256
// digest of "slug:subjectKey" is read as a big-endian integer and reduced
// modulo BucketCount, so the result is stable across processes and releases.
func Bucket(slug, subjectKey string) int {
	sum := sha256.Sum256([]byte(slug + ":" + subjectKey))
	n := new(big.Int).SetBytes(sum[:])
	return int(n.Mod(n, bucketModulus).Int64())
}

// Included reports whether a bucket falls inside the experiment traffic.
// Exactly trafficPercentage of the BucketCount buckets are included.
func Included(bucket, trafficPercentage int) bool {
	return bucket < trafficPercentage
}

// SelectVariant picks the arm for an included bucket: even buckets get
// treatment, odd buckets get control. Holdout is never selected here.
func SelectVariant(bucket int) models.Variant {
	if bucket%2 == 0 {
		return models.VariantTreatment
	}
	return models.VariantControl
}

// Decision is the pure outcome of bucketing, before any persistence.
type Decision struct {
	Bucket   int
	Included bool
	Variant  models.Variant // empty when not included
}

// Evaluate computes the bucketing decision for subject in exp without
// touching storage. It ignores experiment status; Assigner.Assign gates that.
func Evaluate(exp *models.Experiment, subject models.Subject) Decision {
	b := Bucket(exp.Slug, subject.Key())
	d := Decision{Bucket: b, Included: Included(b, exp.TrafficPercentage)}
	if d.Included {
		d.Variant = SelectVariant(b)
	}
	return d
}

// FlagEnabled evaluates a percentage rollout flag for subject. It reuses
// bucketing with the flag slug as the hash namespace, so a subject's
// answer only changes when the rollout percentage moves past its bucket.
func FlagEnabled(flag *models.FeatureFlag, subject models.Subject) bool {
	if flag == nil || !flag.Enabled {
		return false
	}
	return Included(Bucket(flag.Slug, subject.Key()), flag.RolloutPercentage)
}
