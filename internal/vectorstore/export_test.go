package vectorstore

// VectorLiteral exposes the pgvector literal encoder for tests.
var VectorLiteral = vectorLiteral

// CollectionName exposes the tenant collection mapping for tests.
var CollectionName = collectionName

// Cache counters exposed so tests can assert on accounting.
var (
	CacheHitsMetric   = cacheHits
	CacheMissesMetric = cacheMisses
)
