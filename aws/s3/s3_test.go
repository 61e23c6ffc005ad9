// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package s3_test

import (
	"io/ioutil"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	stars3 "github.com/pilosa/stardwh/aws/s3"
	"github.com/pilosa/stardwh/csv"
	"github.com/pkg/errors"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
	gets    int
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	f.gets++
	body, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(strings.NewReader(body))}, nil
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		bucket string
		key    string
		expErr string
	}{
		{url: "s3://data/nyc/calendar.csv", bucket: "data", key: "nyc/calendar.csv"},
		{url: "s3://data/", expErr: "needs both"},
		{url: "s3://data", expErr: "needs both"},
		{url: "http://data/x.csv", expErr: "is not an s3:// URL"},
	}
	for _, test := range tests {
		t.Run(test.url, func(t *testing.T) {
			bucket, key, err := stars3.ParseURL(test.url)
			if test.expErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.expErr) {
					t.Fatalf("expected error containing %q, got %v", test.expErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsing: %v", err)
			}
			if bucket != test.bucket || key != test.key {
				t.Fatalf("got %s %s", bucket, key)
			}
		})
	}
}

func TestExtractorFetchesObjects(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"data/nyc/neighbourhoods.csv": "neighbourhood_group,neighbourhood\nQueens,Astoria\n"}}
	e := csv.NewExtractor(csv.WithRetryWait(0), stars3.WithAPI(api).Option())

	data, err := e.Fetch("s3://data/nyc/neighbourhoods.csv")
	if err != nil {
		t.Fatalf("fetching: %v", err)
	}
	if !strings.Contains(string(data), "Astoria") {
		t.Fatalf("unexpected body: %s", data)
	}

	api.gets = 0
	_, err = e.Fetch("s3://data/missing.csv")
	if err == nil || !strings.Contains(err.Error(), "s3://data/missing.csv") {
		t.Fatalf("expected fetch error naming the object, got %v", err)
	}
	if api.gets != 3 {
		t.Fatalf("expected 3 attempts, got %d", api.gets)
	}
}
