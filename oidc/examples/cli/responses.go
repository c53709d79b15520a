// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

const successHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>Authentication Succeeded</title>
	<style>
		body { font-family: sans-serif; margin: 4em auto; max-width: 32em; color: #333; }
		h1 { font-size: 1.5em; }
	</style>
</head>
<body>
	<h1>Signed in</h1>
	<p>You can close this window and return to the CLI.</p>
</body>
</html>
`
