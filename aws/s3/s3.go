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

// Package s3 opens source tables stored as S3 objects.
package s3

import (
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pilosa/stardwh/csv"
	"github.com/pkg/errors"
)

// Scheme is the URL scheme handled by this package.
const Scheme = "s3"

// ParseURL splits s3://bucket/key into its bucket and key.
func ParseURL(url string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(url, Scheme+"://")
	if rest == url {
		return "", "", errors.Errorf("'%s' is not an %s:// URL", url, Scheme)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("'%s' needs both a bucket and a key", url)
	}
	return parts[0], parts[1], nil
}

// Object is a csv.OpenStringer for a single S3 object. Each Open fetches
// the object again from the start.
type Object struct {
	Bucket string
	Key    string

	api s3iface.S3API
}

// NewObject returns an Object reading bucket/key through api.
func NewObject(api s3iface.S3API, bucket, key string) *Object {
	return &Object{Bucket: bucket, Key: key, api: api}
}

// Open implements csv.Opener.
func (o *Object) Open() (io.ReadCloser, error) {
	result, err := o.api.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(o.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", o)
	}
	return result.Body, nil
}

func (o *Object) String() string {
	return Scheme + "://" + o.Bucket + "/" + o.Key
}

// Openers hands out Objects sharing one lazily created client.
type Openers struct {
	Region string

	once sync.Once
	api  s3iface.S3API
	err  error
}

// NewOpeners returns Openers for region. The AWS session is only created
// when the first s3:// location is opened.
func NewOpeners(region string) *Openers {
	return &Openers{Region: region}
}

// WithAPI returns Openers using api instead of a real client.
func WithAPI(api s3iface.S3API) *Openers {
	o := &Openers{}
	o.once.Do(func() { o.api = api })
	return o
}

func (o *Openers) client() (s3iface.S3API, error) {
	o.once.Do(func() {
		var sess *session.Session
		sess, o.err = session.NewSession(&aws.Config{
			Region: aws.String(o.Region)},
		)
		if o.err != nil {
			o.err = errors.Wrap(o.err, "getting aws session")
			return
		}
		o.api = s3.New(sess)
	})
	return o.api, o.err
}

// Open is a csv.OpenerFunc for s3:// locations.
func (o *Openers) Open(location string) (csv.OpenStringer, error) {
	bucket, key, err := ParseURL(location)
	if err != nil {
		return nil, err
	}
	api, err := o.client()
	if err != nil {
		return nil, err
	}
	return NewObject(api, bucket, key), nil
}

// Option returns the csv.Option registering o with an Extractor.
func (o *Openers) Option() csv.Option {
	return csv.WithOpener(Scheme, o.Open)
}
