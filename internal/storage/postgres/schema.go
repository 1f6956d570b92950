package postgres

// schemaStatements creates the ledger tables. Every statement is idempotent so
// the schema can be applied on each start.
const schemaStatements = `
CREATE TABLE IF NOT EXISTS crawl (
	id      BIGSERIAL PRIMARY KEY,
	"begin" TIMESTAMPTZ NOT NULL,
	"end"   TIMESTAMPTZ,
	CONSTRAINT crawl_end_after_begin CHECK ("end" IS NULL OR "end" >= "begin")
);

CREATE TABLE IF NOT EXISTS record (
	id              BIGSERIAL PRIMARY KEY,
	qid             VARCHAR(64),
	crawl_id        BIGINT NOT NULL REFERENCES crawl (id),
	ranking         INTEGER NOT NULL,
	title           TEXT NOT NULL,
	heat            VARCHAR(32) NOT NULL,
	created         TIMESTAMPTZ,
	"visitCount"    BIGINT,
	"followerCount" BIGINT,
	"answerCount"   BIGINT,
	raw             TEXT,
	url             TEXT,
	hit_at          TIMESTAMPTZ,
	CONSTRAINT record_crawl_ranking_key UNIQUE (crawl_id, ranking)
);

CREATE INDEX IF NOT EXISTS record_crawl_id_idx ON record (crawl_id);
`

const (
	insertCrawlSQL = `INSERT INTO crawl ("begin") VALUES ($1) RETURNING id`
	closeCrawlSQL  = `UPDATE crawl SET "end" = $1 WHERE id = $2 AND "end" IS NULL RETURNING id`
	insertItemSQL  = `
INSERT INTO record (
	qid,
	crawl_id,
	ranking,
	title,
	heat,
	created,
	"visitCount",
	"followerCount",
	"answerCount",
	raw,
	url,
	hit_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`
	listCrawlsSQL = `SELECT id, "begin", "end" FROM crawl ORDER BY id DESC LIMIT $1`
	listItemsSQL  = `
SELECT qid, crawl_id, ranking, title, heat, created, "visitCount", "followerCount", "answerCount", raw, url, hit_at
FROM record
WHERE crawl_id = $1
ORDER BY ranking`
)
