package unixutils

import "context"

// The *String variants run the matching operation and return the output's
// content, removing the temp file.

func (u *Utils) FetchString(ctx context.Context, src string, formData ...string) (string, error) {
	return u.ReadAndRemove(u.Fetch(ctx, src, formData...))
}

func (u *Utils) GunzipString(ctx context.Context, path string) (string, error) {
	return u.ReadAndRemove(u.Gunzip(ctx, path))
}

func (u *Utils) Bunzip2String(ctx context.Context, path string) (string, error) {
	return u.ReadAndRemove(u.Bunzip2(ctx, path))
}

func (u *Utils) SedString(ctx context.Context, path string, exprs ...string) (string, error) {
	return u.ReadAndRemove(u.Sed(ctx, path, exprs...))
}

func (u *Utils) AwkString(ctx context.Context, path, program string) (string, error) {
	return u.ReadAndRemove(u.Awk(ctx, path, program))
}

func (u *Utils) PerlString(ctx context.Context, path string, exprs ...string) (string, error) {
	return u.ReadAndRemove(u.Perl(ctx, path, exprs...))
}

func (u *Utils) Unix2DosString(ctx context.Context, path string) (string, error) {
	return u.ReadAndRemove(u.Unix2Dos(ctx, path))
}

func (u *Utils) Dos2UnixString(ctx context.Context, path string) (string, error) {
	return u.ReadAndRemove(u.Dos2Unix(ctx, path))
}

func (u *Utils) HeadString(ctx context.Context, path string, n int) (string, error) {
	return u.ReadAndRemove(u.Head(ctx, path, n))
}

func (u *Utils) TailString(ctx context.Context, path, spec string) (string, error) {
	return u.ReadAndRemove(u.Tail(ctx, path, spec))
}

func (u *Utils) CutString(ctx context.Context, path, positions string) (string, error) {
	return u.ReadAndRemove(u.Cut(ctx, path, positions))
}

func (u *Utils) IconvString(ctx context.Context, path, to, from string) (string, error) {
	return u.ReadAndRemove(u.Iconv(ctx, path, to, from))
}
