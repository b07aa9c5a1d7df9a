package ingest

import (
	"strings"

	"mvdan.cc/xurls/v2"
)

// allowedPrefixes are the only origins results may be fetched from: issue
// attachments and the iocost-submit S3 buckets. Everything else in the free
// text is rejected before any network request is made.
var allowedPrefixes = []string{
	"https://github.com/",
	"https://iocost-submit.s3.af-south-1.amazonaws.com/",
	"https://iocost-submit.s3.ap-east-1.amazonaws.com/",
	"https://iocost-submit.s3.ap-northeast-1.amazonaws.com/",
	"https://iocost-submit.s3.ap-northeast-2.amazonaws.com/",
	"https://iocost-submit.s3.ap-northeast-3.amazonaws.com/",
	"https://iocost-submit.s3.ap-south-1.amazonaws.com/",
	"https://iocost-submit.s3.ap-southeast-1.amazonaws.com/",
	"https://iocost-submit.s3.ap-southeast-2.amazonaws.com/",
	"https://iocost-submit.s3.ap-southeast-3.amazonaws.com/",
	"https://iocost-submit.s3.ca-central-1.amazonaws.com/",
	"https://iocost-submit.s3.eu-central-1.amazonaws.com/",
	"https://iocost-submit.s3.eu-north-1.amazonaws.com/",
	"https://iocost-submit.s3.eu-south-1.amazonaws.com/",
	"https://iocost-submit.s3.eu-west-1.amazonaws.com/",
	"https://iocost-submit.s3.eu-west-2.amazonaws.com/",
	"https://iocost-submit.s3.eu-west-3.amazonaws.com/",
	"https://iocost-submit.s3.me-south-1.amazonaws.com/",
	"https://iocost-submit.s3.sa-east-1.amazonaws.com/",
	"https://iocost-submit.s3.us-east-1.amazonaws.com/",
	"https://iocost-submit.s3.us-east-2.amazonaws.com/",
	"https://iocost-submit.s3.us-west-1.amazonaws.com/",
	"https://iocost-submit.s3.us-west-2.amazonaws.com/",
}

const resultExtension = ".json.gz"

// Rejection records why one URL or file was not ingested. Rejections are
// collected across a whole event and posted back as a single comment.
type Rejection struct {
	URL    string
	Reason string
}

var urlPattern = xurls.Strict()

// ScanBody extracts URLs from submission free text and partitions them into
// fetchable candidates and rejections. Only candidates may ever be
// downloaded.
func ScanBody(body string) (urls []string, rejected []Rejection) {
	for _, link := range urlPattern.FindAllString(body, -1) {
		if !allowListed(link) {
			rejected = append(rejected, Rejection{URL: link, Reason: "not allow-listed"})
			continue
		}
		if !strings.HasSuffix(link, resultExtension) {
			rejected = append(rejected, Rejection{URL: link, Reason: "not a " + resultExtension + " result file"})
			continue
		}
		urls = append(urls, link)
	}
	return urls, rejected
}

func allowListed(link string) bool {
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(link, prefix) {
			return true
		}
	}
	return false
}
